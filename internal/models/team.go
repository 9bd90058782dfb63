package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TeamFlags marks which self-paced stages a team is valid for. Stored as a JSON
// column; a team's flags are set at creation and only ever flipped forward.
type TeamFlags struct {
	D0 bool `json:"sdmmd0"`
	D1 bool `json:"sdmmd1"`
	D2 bool `json:"sdmmd2"`
	D3 bool `json:"sdmmd3"`
}

func (f TeamFlags) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *TeamFlags) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	case nil:
		*f = TeamFlags{}
		return nil
	default:
		return fmt.Errorf("cannot scan team flags from %T", src)
	}
}

// Team groups the people working on a deliverable. The id is the derived team
// name and is invariant; membership is never mutated after creation (a new
// team is created instead).
type Team struct {
	ID      string    `db:"id" json:"id"`
	DelivID string    `db:"deliv_id" json:"delivId"`
	URL     *string   `db:"url" json:"url"`
	Flags   TeamFlags `db:"flags" json:"flags"`

	// PersonIDs is ordered; the requester is first. Persisted in team_members
	// with an explicit position column.
	PersonIDs []string `db:"-" json:"personIds"`
}
