package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

// UN reads the Security Council consolidated XML list.
type UN struct {
	feed
}

type unAlias struct {
	Quality string `xml:"QUALITY"`
	Name    string `xml:"ALIAS_NAME"`
}

type unEntry struct {
	XMLName         xml.Name
	DataID          string    `xml:"DATAID"`
	Reference       string    `xml:"REFERENCE_NUMBER"`
	FirstName       string    `xml:"FIRST_NAME"`
	SecondName      string    `xml:"SECOND_NAME"`
	ThirdName       string    `xml:"THIRD_NAME"`
	FourthName      string    `xml:"FOURTH_NAME"`
	ListType        string    `xml:"UN_LIST_TYPE"`
	ListedOn        string    `xml:"LISTED_ON"`
	Comments        string    `xml:"COMMENTS1"`
	IndividualAlias []unAlias `xml:"INDIVIDUAL_ALIAS"`
	EntityAlias     []unAlias `xml:"ENTITY_ALIAS"`
}

func (e unEntry) name() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{e.FirstName, e.SecondName, e.ThirdName, e.FourthName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Fetch implements Adapter.
func (u *UN) Fetch(ctx context.Context) ([]model.CandidateRecord, error) {
	data, err := u.payload(ctx, u.settings.URL, nil)
	if err != nil {
		return nil, err
	}

	outCh, errCh := fetcher.StreamXML[unEntry](ctx, bytes.NewReader(data), "INDIVIDUAL", "ENTITY")

	fetchedAt := u.now().UTC()
	var records []model.CandidateRecord
	for e := range outCh {
		name := e.name()
		id := strings.TrimSpace(e.DataID)
		if id == "" {
			id = strings.TrimSpace(e.Reference)
		}
		if name == "" || id == "" {
			continue
		}

		et := model.EntityPerson
		aliases := e.IndividualAlias
		if e.XMLName.Local == "ENTITY" {
			et = model.EntityCompany
			aliases = e.EntityAlias
		}

		rec := model.CandidateRecord{
			SourceID:   u.id,
			ExternalID: id,
			Name:       name,
			EntityType: et,
			RawAttributes: attrs(
				"reference_number", strings.TrimSpace(e.Reference),
				"list_type", strings.TrimSpace(e.ListType),
				"listed_on", strings.TrimSpace(e.ListedOn),
				"comments", strings.TrimSpace(e.Comments),
			),
			FetchedAt: fetchedAt,
		}
		for _, a := range aliases {
			if n := strings.TrimSpace(a.Name); n != "" {
				rec.Aliases = append(rec.Aliases, n)
			}
		}
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, u.readErr(ctx, err)
	}
	if len(records) == 0 {
		return nil, u.badData(eris.New("no INDIVIDUAL or ENTITY elements parsed"))
	}
	return records, nil
}
