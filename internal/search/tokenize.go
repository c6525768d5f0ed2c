// Package search builds the inverted token index and the columnar document
// store that back free-text lookup over admitted line items.
package search

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Tokenize lower-cases text and splits it on whitespace and the separators
// - / , ; : . ( ). Empty tokens are dropped.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '/', ',', ';', ':', '.', '(', ')':
		return true
	}
	return false
}

// Virtual field names resolve to parsed or classified attributes instead of
// raw source columns.
const (
	FieldID           = "id"
	FieldYear         = "year"
	FieldRecordType   = "recordType"
	FieldCategory     = "category"
	FieldCategoryName = "categoryName"
	FieldGroup        = "group"
	FieldGroupName    = "groupName"
)

// FieldValue returns the value of a named field for a classified row.
func FieldValue(r types.ClassifiedRow, name string) string {
	switch name {
	case FieldID:
		return r.Row.ID
	case FieldYear:
		if r.Row.Year == 0 {
			return ""
		}
		return strconv.Itoa(r.Row.Year)
	case FieldRecordType:
		return r.Row.RecordType
	case FieldCategory:
		return r.Path.Category
	case FieldCategoryName:
		return r.Path.CategoryName
	case FieldGroup:
		return r.Path.Secondary
	case FieldGroupName:
		return r.Path.SecondaryName
	}
	return r.Row.Field(name)
}
