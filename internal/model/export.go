package model

// ExportRecord is one SMS extracted from an uploaded export file.
type ExportRecord struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Date   string `json:"date"`
	Msg    string `json:"msg"`
}
