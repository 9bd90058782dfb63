package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RepoFlags tracks which stages a repository is enabled for, plus whether the
// final pull request has been completed. Unlike teams, repository flags are
// mutated in place as the learner advances.
type RepoFlags struct {
	D0Enabled bool `json:"d0enabled"`
	D1Enabled bool `json:"d1enabled"`
	D2Enabled bool `json:"d2enabled"`
	D3Enabled bool `json:"d3enabled"`
	D3PRDone  bool `json:"d3pr"`
}

func (f RepoFlags) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *RepoFlags) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	case nil:
		*f = RepoFlags{}
		return nil
	default:
		return fmt.Errorf("cannot scan repo flags from %T", src)
	}
}

// Repository is the local record of a student repo. The id is the derived repo
// name, unique locally and on GitHub. URL stays nil until the remote side has
// been provisioned; URL and the owning team's URL are set together or not at
// all.
type Repository struct {
	ID      string    `db:"id" json:"id"`
	DelivID string    `db:"deliv_id" json:"delivId"`
	URL     *string   `db:"url" json:"url"`
	Flags   RepoFlags `db:"flags" json:"flags"`

	TeamIDs []string `db:"-" json:"teamIds"`
}
