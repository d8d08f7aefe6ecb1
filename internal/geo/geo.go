// Package geo resolves source addresses to coarse locations. The resolver is
// a static prefix table over the RFC 5737 documentation ranges so that
// reports carry plausible geographic context without an external database.
package geo

import "net/netip"

// Location describes where a source address appears to originate.
type Location struct {
	Country   string  `json:"country"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Unknown is returned for addresses outside the mapped ranges.
var Unknown = Location{Country: "Unknown"}

type prefixEntry struct {
	prefix netip.Prefix
	loc    Location
}

var table = []prefixEntry{
	{
		prefix: netip.MustParsePrefix("203.0.113.0/24"),
		loc:    Location{Country: "Exampleland", Region: "East Example", City: "Exville", Latitude: 34.05, Longitude: -118.25},
	},
	{
		prefix: netip.MustParsePrefix("198.51.100.0/24"),
		loc:    Location{Country: "Testonia", Region: "North Test", City: "Test City", Latitude: 51.51, Longitude: -0.13},
	},
	{
		prefix: netip.MustParsePrefix("192.0.2.0/24"),
		loc:    Location{Country: "Mockistan", Region: "Central Mock", City: "Mock City", Latitude: 35.68, Longitude: 139.69},
	},
}

// Lookup maps an address string to a Location. Unparseable or unmapped
// addresses resolve to Unknown rather than an error; enrichment is advisory.
func Lookup(addr string) Location {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return Unknown
	}
	ip = ip.Unmap()
	for _, e := range table {
		if e.prefix.Contains(ip) {
			return e.loc
		}
	}
	return Unknown
}
