package domain

import (
	"context"
	"log/slog"
	"maps"
)

// EnrichWithGeocoding adds location details to a record's attributes.
// Records with coordinates are reverse geocoded; records with only a place
// name are forward geocoded and gain coordinates. Key, position and category
// are never changed, so enrichment cannot affect layout.
//
// If geocoder is nil the record is returned unchanged. A failed lookup keeps
// the record and marks it with geo_source=failed.
func EnrichWithGeocoding(ctx context.Context, rec Record, fields GeoFields, geocoder Geocoder, logger *slog.Logger) Record {
	if geocoder == nil {
		return rec
	}

	lat, latOK := floatAttr(rec.Attributes, fields.Lat)
	lon, lonOK := floatAttr(rec.Attributes, fields.Lon)
	hasCoords := latOK && lonOK && (lat != 0 || lon != 0)
	place := rec.Attr(fields.Place)

	attrs := maps.Clone(rec.Attributes)
	if attrs == nil {
		attrs = make(map[string]any)
	}
	rec.Attributes = attrs

	switch {
	case hasCoords:
		result, err := geocoder.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"key", rec.Key,
				"lat", lat,
				"lon", lon,
				"error", err,
			)
			attrs[AttrGeoSource] = "failed"
			return rec
		}
		if result.FormattedAddress == "" {
			attrs[AttrGeoSource] = "original"
			return rec
		}
		setResult(attrs, result, "reverse")
	case place != "":
		var region string
		if fields.Region != "" {
			region = rec.Attr(fields.Region)
		}
		result, err := geocoder.ForwardGeocode(ctx, place, region)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"key", rec.Key,
				"place", place,
				"region", region,
				"error", err,
			)
			attrs[AttrGeoSource] = "failed"
			return rec
		}
		if result.Lat == 0 && result.Lon == 0 {
			attrs[AttrGeoSource] = "original"
			return rec
		}
		attrs[fields.Lat] = result.Lat
		attrs[fields.Lon] = result.Lon
		setResult(attrs, result, "forward")
	default:
		attrs[AttrGeoSource] = "original"
	}
	return rec
}

func setResult(attrs map[string]any, result GeocodingResult, source string) {
	attrs[AttrFormattedAddress] = result.FormattedAddress
	attrs[AttrPlaceName] = result.PlaceName
	attrs[AttrGeoConfidence] = result.Confidence
	attrs[AttrGeoSource] = source
}

func floatAttr(attrs map[string]any, name string) (float64, bool) {
	if name == "" {
		return 0, false
	}
	return sortValue(attrs[name])
}
