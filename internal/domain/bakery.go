package domain

type Bakery struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	URL         string   `json:"url,omitempty"`
	Lat         *float64 `json:"latitude,omitempty"`
	Lon         *float64 `json:"longitude,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	IsFavorited *bool    `json:"isFavorited,omitempty"`
}

type Menu struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price,omitempty"`
	Photo string   `json:"photo,omitempty"`
}

// BakeryPage is the bakery detail screen: the bakery plus its menu board.
type BakeryPage struct {
	Bakery Bakery `json:"bakery"`
	Menus  []Menu `json:"menus"`
}

type Member struct {
	LoginID  string `json:"loginId,omitempty"`
	Nickname string `json:"nickname"`
}

// Course is a member's "bakery tour" itinerary.
type Course struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Bakeries []Bakery `json:"bakeries"`
}
