package match

import (
	"regexp"

	"github.com/sells-group/sanction-watch/internal/model"
)

var (
	vesselKeywords = map[string]bool{
		"VESSEL": true, "SHIP": true, "BOAT": true, "TANKER": true, "CARGO": true,
		"IMO": true, "MMSI": true, "MV": true, "MT": true, "MS": true, "SS": true,
	}
	companyKeywords = map[string]bool{
		"LTD": true, "LIMITED": true, "INC": true, "CORP": true, "CORPORATION": true,
		"COMPANY": true, "CO": true, "LLC": true, "PLC": true, "LLP": true, "GMBH": true,
		"SA": true, "AG": true, "BV": true, "JSC": true, "PJSC": true, "HOLDINGS": true,
		"GROUP": true, "TRADING": true, "BANK": true, "SHIPPING": true,
	}
	imoNumberRe = regexp.MustCompile(`\b(IMO\s*)?\d{7}\b`)
	alphaWordRe = regexp.MustCompile(`^[\p{L}]+$`)
)

// DetectEntityType guesses the entity type of a free-text name. Vessel markers
// win over company suffixes; two or more purely alphabetic words read as a
// person. Anything else is unknown.
func DetectEntityType(name string) model.EntityType {
	n := Normalize(name)
	if n == "" {
		return model.EntityUnknown
	}

	toks := Tokens(n)
	for _, t := range toks {
		if vesselKeywords[t] {
			return model.EntityVessel
		}
	}
	if imoNumberRe.MatchString(n) {
		return model.EntityVessel
	}
	for _, t := range toks {
		if companyKeywords[t] {
			return model.EntityCompany
		}
	}

	if len(toks) >= 2 {
		for _, t := range toks {
			if !alphaWordRe.MatchString(t) {
				return model.EntityUnknown
			}
		}
		return model.EntityPerson
	}

	return model.EntityUnknown
}
