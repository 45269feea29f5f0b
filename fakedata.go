package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	defaultShippingEmail = "automationhenckels@gmail.com"
	defaultShippingPhone = "18147313801"
	userEmailLocalPart   = "automationhenckels"
	userEmailDomain      = "gmail.com"
)

// Canadian postal codes never use D, F, I, O, Q or U, and never start with
// W or Z.
const (
	postalFirstLetters = "ABCEGHJKLMNPRSTVXY"
	postalLetters      = "ABCEGHJKLMNPRSTVWXYZ"
)

var canadianProvinces = []string{
	"Alberta",
	"British Columbia",
	"Manitoba",
	"New Brunswick",
	"Newfoundland and Labrador",
	"Northwest Territories",
	"Nova Scotia",
	"Nunavut",
	"Ontario",
	"Prince Edward Island",
	"Quebec",
	"Saskatchewan",
	"Yukon",
}

var germanStates = []string{
	"Baden-Württemberg",
	"Bayern",
	"Berlin",
	"Brandenburg",
	"Bremen",
	"Hamburg",
	"Hessen",
	"Mecklenburg-Vorpommern",
	"Niedersachsen",
	"Nordrhein-Westfalen",
	"Rheinland-Pfalz",
	"Saarland",
	"Sachsen",
	"Sachsen-Anhalt",
	"Schleswig-Holstein",
	"Thüringen",
}

var countryNames = map[string]string{
	"us": "United States",
	"ca": "Canada",
	"de": "Germany",
}

// AddressRecord is the data entered into a contact, shipping or billing
// form. Empty optional fields are skipped by the form fillers.
type AddressRecord struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func (a AddressRecord) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// AddressKind selects which fields a form requires.
type AddressKind int

const (
	ContactForm AddressKind = iota
	ShippingForm
	BillingForm
)

func (k AddressKind) String() string {
	switch k {
	case ContactForm:
		return "contact"
	case ShippingForm:
		return "shipping"
	case BillingForm:
		return "billing"
	default:
		return "unknown"
	}
}

// Validate reports every required field that is empty for the given form.
func (a AddressRecord) Validate(kind AddressKind) error {
	fields := map[AddressKind][]struct {
		name  string
		value string
	}{
		ContactForm: {{"email", a.Email}},
		ShippingForm: {
			{"firstName", a.FirstName}, {"lastName", a.LastName}, {"address", a.Address},
			{"city", a.City}, {"state", a.State}, {"zip", a.Zip}, {"phone", a.Phone},
		},
		BillingForm: {
			{"firstName", a.FirstName}, {"lastName", a.LastName}, {"address", a.Address},
			{"city", a.City}, {"zip", a.Zip},
		},
	}

	var missing []string
	for _, f := range fields[kind] {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return contractViolation("%s data missing required fields: %s", kind, strings.Join(missing, ", "))
	}
	return nil
}

// merge returns a copy of a with every non-empty field of o applied.
func (a AddressRecord) merge(o AddressRecord) AddressRecord {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&a.Email, o.Email)
	set(&a.FirstName, o.FirstName)
	set(&a.LastName, o.LastName)
	set(&a.Address, o.Address)
	set(&a.Address2, o.Address2)
	set(&a.City, o.City)
	set(&a.State, o.State)
	set(&a.Zip, o.Zip)
	set(&a.Country, o.Country)
	set(&a.Phone, o.Phone)
	return a
}

// UserRecord is the data for the account registration form.
type UserRecord struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// DataGenerator produces locale-appropriate test identities. A generator is
// not safe for concurrent use; each scenario session owns one.
type DataGenerator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewDataGenerator returns a generator. Seed 0 draws a random seed.
func NewDataGenerator(seed uint64) *DataGenerator {
	return &DataGenerator{faker: gofakeit.New(seed), now: time.Now}
}

// Shipping generates a shipping record for country (us, ca or de; anything
// else is treated as us) with overrides applied on top.
func (g *DataGenerator) Shipping(country string, overrides AddressRecord) AddressRecord {
	f := g.faker
	record := AddressRecord{
		Email:     defaultShippingEmail,
		FirstName: f.FirstName(),
		LastName:  f.LastName(),
		Address:   fmt.Sprintf("%s %s", f.StreetNumber(), f.StreetName()),
		City:      f.City(),
		Phone:     defaultShippingPhone,
	}

	switch strings.ToLower(country) {
	case "ca":
		record.State = g.pick(canadianProvinces)
		record.Zip = g.CanadianPostalCode()
		record.Country = countryNames["ca"]
	case "de":
		record.State = g.pick(germanStates)
		record.Zip = f.Numerify("#####")
		record.Country = countryNames["de"]
	default:
		record.State = f.State()
		record.Zip = f.Zip()
		record.Country = countryNames["us"]
	}

	return record.merge(overrides)
}

// Billing generates a billing record distinct from any shipping record.
func (g *DataGenerator) Billing(country string, overrides AddressRecord) AddressRecord {
	record := g.Shipping(country, AddressRecord{})
	record.Email = ""
	return record.merge(overrides)
}

// User generates registration data with a unique plus-addressed email.
func (g *DataGenerator) User(overrides UserRecord) UserRecord {
	suffix := g.now().UnixMilli() + int64(g.faker.IntRange(0, 999))
	user := UserRecord{
		Email:     fmt.Sprintf("%s+%d@%s", userEmailLocalPart, suffix, userEmailDomain),
		FirstName: g.faker.FirstName(),
		LastName:  g.faker.LastName(),
		Password:  g.SecurePassword(12),
	}
	if overrides.Email != "" {
		user.Email = overrides.Email
	}
	if overrides.FirstName != "" {
		user.FirstName = overrides.FirstName
	}
	if overrides.LastName != "" {
		user.LastName = overrides.LastName
	}
	if overrides.Password != "" {
		user.Password = overrides.Password
	}
	return user
}

// CanadianPostalCode returns a code in the form A1A 1A1.
func (g *DataGenerator) CanadianPostalCode() string {
	f := g.faker
	letter := func(set string) byte { return set[f.IntRange(0, len(set)-1)] }
	digit := func() byte { return byte('0' + f.IntRange(0, 9)) }

	return string([]byte{
		letter(postalFirstLetters), digit(), letter(postalLetters),
		' ',
		digit(), letter(postalLetters), digit(),
	})
}

// SecurePassword returns a shuffled password of at least 8 characters with
// at least one upper, lower, digit and special character.
func (g *DataGenerator) SecurePassword(length int) string {
	if length < 8 {
		length = 8
	}
	f := g.faker
	const (
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		lower   = "abcdefghijklmnopqrstuvwxyz"
		digits  = "0123456789"
		special = "!@#$%^&*"
	)
	all := upper + lower + digits + special
	pickFrom := func(set string) rune { return rune(set[f.IntRange(0, len(set)-1)]) }

	chars := []rune{pickFrom(upper), pickFrom(lower), pickFrom(digits), pickFrom(special)}
	for len(chars) < length {
		chars = append(chars, pickFrom(all))
	}
	f.ShuffleAnySlice(chars)
	return string(chars)
}

func (g *DataGenerator) pick(values []string) string {
	return values[g.faker.IntRange(0, len(values)-1)]
}
