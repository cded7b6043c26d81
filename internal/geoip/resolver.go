package geoip

import (
	"log"
	"net"

	"github.com/oschwald/maxminddb-golang"

	"livecast/internal/models"
)

// Resolver looks viewer IPs up in a MaxMind database. A Resolver without a
// database is valid and resolves nothing; geo enrichment is observability
// only and never gates a join.
type Resolver struct {
	db *maxminddb.Reader
}

type mmdbRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

func NewResolver(dbPath string) *Resolver {
	if dbPath == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		log.Printf("geoip: failed to open %s: %v", dbPath, err)
		return &Resolver{}
	}
	return &Resolver{db: db}
}

func (r *Resolver) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Resolver) Lookup(ip net.IP) *models.GeoLocation {
	if ip == nil || r.db == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return nil
	}
	var record mmdbRecord
	if err := r.db.Lookup(ip, &record); err != nil {
		return nil
	}
	return &models.GeoLocation{
		IP:      ip.String(),
		City:    record.City.Names["en"],
		Country: record.Country.ISOCode,
		Lat:     record.Location.Latitude,
		Lng:     record.Location.Longitude,
	}
}
