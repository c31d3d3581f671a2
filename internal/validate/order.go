package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/wellywell/skborders/internal/types"
)

// district:area:quarter:parcel, e.g. 77:01:0004042:1234
var cadastralNumber = regexp.MustCompile(`^\d{2}:\d{2}:\d{6,7}:\d{1,}$`)

func ValidateCadastralNumber(number string) bool {
	return cadastralNumber.MatchString(number)
}

func ValidateEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, ", "))
}

func ValidateNewOrder(in types.NewOrder) error {
	var fields []string
	if !ValidateCadastralNumber(in.CadastralNumber) {
		fields = append(fields, "cadastralNumber")
	}
	if in.OrderKindCode == "" {
		fields = append(fields, "orderKindCode")
	}
	if !ValidateEmail(in.AnswerEmail) {
		fields = append(fields, "answerEmail")
	}
	if in.PledgeID != nil && *in.PledgeID <= 0 {
		fields = append(fields, "pledgeId")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
