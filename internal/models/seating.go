package models

// Zone groups tables. Capacity is derived from the zone's tables and never stored.
type Zone struct {
	ID       string `json:"zoneId" yaml:"id"`
	Name     string `json:"zoneName" yaml:"name"`
	Color    string `json:"color,omitempty" yaml:"color"`
	Order    int    `json:"order" yaml:"order"`
	Capacity int    `json:"-" yaml:"-"`
}

// TableData is a physical table inside a zone
type TableData struct {
	ID       string  `json:"tableId" yaml:"id"`
	ZoneID   string  `json:"zoneId" yaml:"-"`
	Name     string  `json:"tableName" yaml:"name"`
	Capacity int     `json:"capacity" yaml:"capacity"`
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	Order    int     `json:"order" yaml:"order"`
}
