package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/prospector/internal/scoring"
	"gorm.io/datatypes"
)

// Company is an accepted, scored enrichment result.
type Company struct {
	ID             int64                                 `json:"id,string" gorm:"primaryKey"`
	Name           string                                `json:"name" gorm:"type:text;not null"`
	NameKey        string                                `json:"-" gorm:"column:name_key;size:191;not null;uniqueIndex:ux_companies_name_key"`
	Category       string                                `json:"category,omitempty" gorm:"type:text"`
	SizeClass      string                                `json:"size_class,omitempty" gorm:"column:size_class;type:varchar(16)"`
	ContactFormURL string                                `json:"contact_form_url,omitempty" gorm:"column:contact_form_url;type:text"`
	Phone          string                                `json:"phone,omitempty" gorm:"type:varchar(64)"`
	Email          string                                `json:"email,omitempty" gorm:"type:varchar(255)"`
	IsListed       bool                                  `json:"is_listed" gorm:"column:is_listed;not null;default:false"`
	Description    string                                `json:"description,omitempty" gorm:"type:text"`
	Features       datatypes.JSONSlice[string]           `json:"features,omitempty"`
	IsStartup      bool                                  `json:"is_startup" gorm:"column:is_startup;not null;default:false"`
	IsEnterprise   bool                                  `json:"is_enterprise" gorm:"column:is_enterprise;not null;default:false"`
	Score          int                                   `json:"score" gorm:"not null;index:ix_companies_score"`
	ScoreBreakdown datatypes.JSONType[scoring.Breakdown] `json:"score_breakdown" gorm:"column:score_breakdown"`
	Explanation    string                                `json:"explanation" gorm:"type:text"`
	DiscoveryTerm  string                                `json:"discovery_term" gorm:"column:discovery_term;type:text"`
	SourceURL      string                                `json:"source_url" gorm:"column:source_url;type:text"`
	RunID          string                                `json:"run_id,omitempty" gorm:"column:run_id;size:32"`
	CreatedAt      time.Time                             `json:"created_at" gorm:"not null"`
}

func (Company) TableName() string { return "companies" }

// NameKey folds a company name for case-insensitive duplicate detection.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
