package domain

import "time"

// Proposal holds two outreach variants and a contact-form text for a company.
type Proposal struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	CompanyID       int64     `json:"company_id,string" gorm:"column:company_id;not null;index:ix_proposals_company"`
	VariantASubject string    `json:"variant_a_subject" gorm:"column:variant_a_subject;type:text;not null"`
	VariantABody    string    `json:"variant_a_body" gorm:"column:variant_a_body;type:text;not null"`
	VariantBSubject string    `json:"variant_b_subject" gorm:"column:variant_b_subject;type:text;not null"`
	VariantBBody    string    `json:"variant_b_body" gorm:"column:variant_b_body;type:text;not null"`
	ContactFormText string    `json:"contact_form_text,omitempty" gorm:"column:contact_form_text;type:text"`
	Model           string    `json:"model,omitempty" gorm:"type:varchar(64)"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null"`
}

func (Proposal) TableName() string { return "proposals" }
