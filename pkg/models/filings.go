package models

// Filing10Q is one quarterly report entry from SEC EDGAR.
type Filing10Q struct {
	Ticker       string `json:"ticker"`
	CIK          string `json:"cik"`
	AccessionNo  string `json:"accession_no"`
	FilingDate   string `json:"filing_date"`  // YYYY-MM-DD
	ReportDate   string `json:"report_date"`  // period of report
	PrimaryDoc   string `json:"primary_doc"`  // document file name
	DocumentURL  string `json:"document_url"` // full Archives URL
	FiscalPeriod string `json:"fiscal_period,omitempty"`
}
