package generator

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/validator"
	"github.com/vitebski/booking-admin/pkg/models"
)

// DataGenerator produces raw form input that passes the field rules, for
// seeding a table with sample bookings
type DataGenerator struct {
	Faker     faker.Faker
	Validator *validator.FieldValidator
	Logger    *logrus.Logger
}

// NewDataGenerator creates a new data generator
func NewDataGenerator(fieldValidator *validator.FieldValidator, logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:     faker.New(),
		Validator: fieldValidator,
		Logger:    logger,
	}
}

// GenerateRecord generates raw input for every writable field of a form
func (dg *DataGenerator) GenerateRecord(fields []models.Field) map[string]string {
	raw := make(map[string]string)
	kinds := make(map[string]models.FieldKind)
	for _, field := range fields {
		if field.ReadOnly {
			continue
		}
		kinds[field.Column.Name] = field.Kind

		// 10% chance of leaving an optional field to its default
		if !field.Required && rand.Float32() < 0.1 {
			continue
		}
		raw[field.Column.Name] = dg.GenerateValue(field)
	}

	dg.enforceOrder(raw, kinds)
	return raw
}

// GenerateValue generates the raw input for one field
func (dg *DataGenerator) GenerateValue(field models.Field) string {
	col := field.Column
	columnName := strings.ToLower(col.Name)

	if col.Name == dg.Validator.IdentifierColumn() {
		return dg.Faker.Numerify("######")
	}
	if dg.Validator.IsPhone(col) {
		return dg.Faker.Numerify("##########")
	}

	switch field.Kind {
	case models.KindNumber:
		return dg.generateNumber(columnName, field.Integer)
	case models.KindBoolean:
		return strconv.FormatBool(dg.Faker.Boolean().Bool())
	case models.KindDate:
		return dg.generateDate()
	case models.KindTime:
		return dg.generateTime()
	case models.KindEnum:
		if len(field.Options) == 0 {
			return ""
		}
		return dg.Faker.RandomStringElement(field.Options)
	default:
		return truncate(dg.generateText(columnName), col.MaxLength)
	}
}

// generateText picks a realistic value from the column name
func (dg *DataGenerator) generateText(columnName string) string {
	switch {
	case strings.Contains(columnName, "email"):
		return dg.Faker.Internet().Email()
	case strings.Contains(columnName, "company") || strings.Contains(columnName, "business"):
		return dg.Faker.Company().Name()
	case strings.Contains(columnName, "name") || strings.Contains(columnName, "client") || strings.Contains(columnName, "customer"):
		return dg.Faker.Person().Name()
	case strings.Contains(columnName, "venue") || strings.Contains(columnName, "location") || strings.Contains(columnName, "city"):
		return dg.Faker.Address().City()
	case strings.Contains(columnName, "address"):
		return dg.Faker.Address().Address()
	case strings.Contains(columnName, "event") || strings.Contains(columnName, "type"):
		return dg.Faker.RandomStringElement([]string{"Wedding", "Birthday", "Conference", "Gala", "Workshop", "Reunion"})
	case strings.Contains(columnName, "status"):
		return dg.Faker.RandomStringElement([]string{"pending", "confirmed", "cancelled"})
	case strings.Contains(columnName, "note") || strings.Contains(columnName, "description") || strings.Contains(columnName, "comment"):
		return dg.Faker.Lorem().Sentence(6)
	default:
		return dg.Faker.Lorem().Word()
	}
}

func (dg *DataGenerator) generateNumber(columnName string, integer bool) string {
	lo, hi := 1, 500
	if strings.Contains(columnName, "budget") || strings.Contains(columnName, "price") ||
		strings.Contains(columnName, "amount") || strings.Contains(columnName, "cost") {
		lo, hi = 500, 50000
	}
	if integer {
		return strconv.Itoa(dg.Faker.IntBetween(lo, hi))
	}
	value := float64(dg.Faker.IntBetween(lo*100, hi*100)) / 100
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// generateDate generates a date within the next year
func (dg *DataGenerator) generateDate() string {
	days := rand.Intn(365)
	return time.Now().UTC().AddDate(0, 0, days).Format(validator.DateLayout)
}

// generateTime generates a time on the hour or half hour during business hours
func (dg *DataGenerator) generateTime() string {
	hour := 8 + rand.Intn(12)
	minute := 30 * rand.Intn(2)
	return fmt.Sprintf("%02d:%02d:00", hour, minute)
}

// enforceOrder moves end values after their start values. Rules come back
// earliest column first, so a chain a<b<c is settled in one pass.
func (dg *DataGenerator) enforceOrder(raw map[string]string, kinds map[string]models.FieldKind) {
	for _, rule := range dg.Validator.OrderRules() {
		start, okStart := raw[rule.Start]
		end, okEnd := raw[rule.End]
		if !okStart || !okEnd {
			continue
		}

		switch kinds[rule.End] {
		case models.KindDate:
			s, err1 := time.Parse(validator.DateLayout, start)
			e, err2 := time.Parse(validator.DateLayout, end)
			if err1 != nil || err2 != nil || !e.Before(s) {
				continue
			}
			raw[rule.End] = s.AddDate(0, 0, rand.Intn(3)).Format(validator.DateLayout)

		case models.KindTime:
			s, err1 := time.Parse(validator.TimeLayout, start)
			e, err2 := time.Parse(validator.TimeLayout, end)
			if err1 != nil || err2 != nil || e.After(s) {
				continue
			}
			moved := s.Add(time.Duration(1+rand.Intn(4)) * time.Hour)
			if moved.Day() != s.Day() {
				moved = time.Date(s.Year(), s.Month(), s.Day(), 23, 59, 59, 0, time.UTC)
			}
			if !moved.After(s) {
				dg.Logger.Debugf("Cannot place %s after %s, dropping it", rule.End, rule.Start)
				delete(raw, rule.End)
				continue
			}
			raw[rule.End] = moved.Format(validator.TimeLayout)
		}
	}
}

func truncate(s string, maxLength *int64) string {
	if maxLength == nil || *maxLength <= 0 {
		return s
	}
	runes := []rune(s)
	if int64(len(runes)) <= *maxLength {
		return s
	}
	return string(runes[:*maxLength])
}
