// Package validation checks and normalizes user supplied records before they
// are written.
//
// # Validation Checks
//
// People:
//   - first and last name required, bounded length
//   - email required, well formed
//   - phone, when present, 7 to 15 digits with an optional leading +
//
// Organizations:
//   - name required, known organization type
//   - billing address with all five fields present
//
// Users:
//   - email required, well formed
//   - first and last name required
//
// # Usage Example
//
//	normalizer := validation.NewNormalizer(nil)
//	person = normalizer.Person(person)
//
//	result := validation.NewValidator(nil).ValidatePerson(person)
//	if err := result.Err(); err != nil {
//		return err // apperr Validation kind
//	}
package validation
