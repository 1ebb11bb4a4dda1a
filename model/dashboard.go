package model

// Trend describes the direction and size of a change between periods.
type Trend struct {
	Trend            string `json:"trend"`
	PercentageChange string `json:"percentageChange"`
}

// AnalyticsData is the dashboard headline metrics block.
type AnalyticsData struct {
	TotalCustomers int `json:"totalCustomers"`
	TotalOrders    int `json:"totalOrders"`
	Trends         struct {
		Orders    Trend `json:"orders"`
		Customers Trend `json:"customers"`
	} `json:"trends"`
}
