// Package prospect maps raw Overpass elements into canonical Prospect
// entities and pre-filters them against already-known records.
package prospect

import (
	"strings"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/overpass"
)

// Tag fallback priority: the direct tag wins over the contact-prefixed
// variant, which wins over the operator-prefixed variant.
var (
	emailTags    = []string{"email", "contact:email", "operator:email"}
	phoneTags    = []string{"phone", "contact:phone", "operator:phone"}
	categoryTags = []string{"amenity", "shop", "craft", "office"}
)

// firstTag returns the first non-empty value among the given tag keys.
func firstTag(tags map[string]string, keys []string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// composeAddress joins the house number and street tags with a single space.
// Absent street means absent address, regardless of house number.
func composeAddress(tags map[string]string) string {
	street := tags["addr:street"]
	if street == "" {
		return ""
	}
	return strings.TrimSpace(tags["addr:housenumber"] + " " + street)
}

// Normalize converts a raw Overpass element into a Prospect. It is total:
// missing optional tags map to empty fields, never an error.
func Normalize(el overpass.Element) model.Prospect {
	p := model.Prospect{
		OSMID:     el.ID,
		Name:      el.Tags["name"],
		Category:  firstTag(el.Tags, categoryTags),
		Email:     firstTag(el.Tags, emailTags),
		Phone:     firstTag(el.Tags, phoneTags),
		Website:   el.Tags["website"],
		Address:   composeAddress(el.Tags),
		Postcode:  el.Tags["addr:postcode"],
		City:      el.Tags["addr:city"],
		Latitude:  el.Lat,
		Longitude: el.Lon,
		ScrapedAt: time.Now().UTC(),
	}
	p.HasWebsite = p.Website != ""
	p.EmailValidated = p.Email != ""
	return p
}

// NormalizeAll maps a batch of elements in input order.
func NormalizeAll(els []overpass.Element) []model.Prospect {
	prospects := make([]model.Prospect, len(els))
	for i, el := range els {
		prospects[i] = Normalize(el)
	}
	return prospects
}
