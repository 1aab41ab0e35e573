package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

// OpenSanctions reads the FollowTheMoney entity export of an OpenSanctions
// dataset. It is the primary source and needs an API key.
type OpenSanctions struct {
	feed
}

// ftmEntity is one line of an entities.ftm.json export. Properties are kept
// raw because nested exports may inline entities instead of strings.
type ftmEntity struct {
	ID         string                     `json:"id"`
	Schema     string                     `json:"schema"`
	Caption    string                     `json:"caption"`
	Datasets   []string                   `json:"datasets"`
	Target     bool                       `json:"target"`
	FirstSeen  string                     `json:"first_seen"`
	LastSeen   string                     `json:"last_seen"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func (e ftmEntity) strings(prop string) []string {
	raw, ok := e.Properties[prop]
	if !ok {
		return nil
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil
	}
	return vals
}

func (e ftmEntity) first(prop string) string {
	if v := e.strings(prop); len(v) > 0 {
		return v[0]
	}
	return ""
}

var ftmSchemas = map[string]model.EntityType{
	"Person":       model.EntityPerson,
	"Company":      model.EntityCompany,
	"Organization": model.EntityCompany,
	"LegalEntity":  model.EntityCompany,
	"PublicBody":   model.EntityCompany,
	"Vessel":       model.EntityVessel,
	"Airplane":     model.EntityUnknown,
}

// Fetch implements Adapter. Only sanctioned targets of a known schema are kept.
func (o *OpenSanctions) Fetch(ctx context.Context) ([]model.CandidateRecord, error) {
	if o.settings.APIKey == "" {
		return nil, NewFetchError(o.id, ReasonDisabled, eris.New("no api key configured"))
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "ApiKey "+o.settings.APIKey)
	hdr.Set("Accept", "application/json")

	data, err := o.payload(ctx, o.settings.URL, hdr)
	if err != nil {
		return nil, err
	}

	outCh, errCh := fetcher.DecodeJSONLines[ftmEntity](ctx, bytes.NewReader(data))

	fetchedAt := o.now().UTC()
	var records []model.CandidateRecord
	for e := range outCh {
		et, known := ftmSchemas[e.Schema]
		if !known || !e.Target || e.ID == "" {
			continue
		}

		names := e.strings("name")
		name := strings.TrimSpace(e.Caption)
		if name == "" && len(names) > 0 {
			name = names[0]
		}
		if name == "" {
			continue
		}

		var aliases []string
		for _, prop := range []string{"name", "alias", "weakAlias", "previousName"} {
			for _, v := range e.strings(prop) {
				if v = strings.TrimSpace(v); v != "" && v != name {
					aliases = append(aliases, v)
				}
			}
		}

		records = append(records, model.CandidateRecord{
			SourceID:   o.id,
			ExternalID: e.ID,
			Name:       name,
			Aliases:    aliases,
			EntityType: et,
			RawAttributes: attrs(
				"schema", e.Schema,
				"datasets", strings.Join(e.Datasets, ","),
				"first_seen", e.FirstSeen,
				"last_seen", e.LastSeen,
				"imo", e.first("imoNumber"),
				"mmsi", e.first("mmsi"),
				"country", strings.Join(e.strings("country"), ","),
				"flag", e.first("flag"),
				"url", "https://www.opensanctions.org/entities/"+e.ID+"/",
			),
			FetchedAt: fetchedAt,
		})
	}
	if err := <-errCh; err != nil {
		return nil, o.readErr(ctx, err)
	}
	if len(records) == 0 {
		return nil, o.badData(eris.New("no target entities in export"))
	}
	return records, nil
}
