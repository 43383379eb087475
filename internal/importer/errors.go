package importer

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var fieldMessages = map[string]string{
	"TaxID":        "tax id must have 10 or 12 digits",
	"FirstContact": "first contact date must be DD.MM.YY",
	"NextContact":  "next contact date must be DD.MM.YY",
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if m, ok := fieldMessages[fe.Field()]; ok {
			msgs = append(msgs, m)
			continue
		}
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}
