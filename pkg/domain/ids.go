package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "coldchain/pkg/domain-errors"
)

// maxIdentifierLength bounds externally supplied identifiers. Vial serials and
// shipment numbers come from manufacturers and carriers, so they are opaque
// strings rather than UUIDs.
const maxIdentifierLength = 128

// Typed identifiers keep a vial id from being passed where a patient id is
// expected. Construct them with the Parse functions at trust boundaries.
type (
	VialID        string
	TransferID    string
	PatientID     string
	ParticipantID string
	HospitalID    string
	CarrierID     string
)

func (id VialID) String() string        { return string(id) }
func (id TransferID) String() string    { return string(id) }
func (id PatientID) String() string     { return string(id) }
func (id ParticipantID) String() string { return string(id) }
func (id HospitalID) String() string    { return string(id) }
func (id CarrierID) String() string     { return string(id) }

func (id VialID) IsNil() bool        { return id == "" }
func (id TransferID) IsNil() bool    { return id == "" }
func (id PatientID) IsNil() bool     { return id == "" }
func (id ParticipantID) IsNil() bool { return id == "" }
func (id HospitalID) IsNil() bool    { return id == "" }
func (id CarrierID) IsNil() bool     { return id == "" }

func ParseVialID(s string) (VialID, error) {
	v, err := parseIdentifier("vial id", s)
	return VialID(v), err
}

func ParseTransferID(s string) (TransferID, error) {
	v, err := parseIdentifier("transfer id", s)
	return TransferID(v), err
}

func ParsePatientID(s string) (PatientID, error) {
	v, err := parseIdentifier("patient id", s)
	return PatientID(v), err
}

func ParseParticipantID(s string) (ParticipantID, error) {
	v, err := parseIdentifier("participant id", s)
	return ParticipantID(v), err
}

func ParseHospitalID(s string) (HospitalID, error) {
	v, err := parseIdentifier("hospital id", s)
	return HospitalID(v), err
}

func ParseCarrierID(s string) (CarrierID, error) {
	v, err := parseIdentifier("carrier id", s)
	return CarrierID(v), err
}

// parseIdentifier accepts non-empty UTF-8 identifiers without whitespace or
// control characters.
func parseIdentifier(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" must be valid UTF-8")
	}
	if strings.IndexFunc(s, invalidIdentifierRune) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" contains invalid characters")
	}
	return s, nil
}

func invalidIdentifierRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}
