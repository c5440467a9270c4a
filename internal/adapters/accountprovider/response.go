package accountprovider

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Amund211/mojangdirectory/internal/domain"
	"github.com/Amund211/mojangdirectory/internal/strutils"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	invalidUsernameMessage = "An invalid parameter was given."
	invalidBatchMessage    = "An invalid username was passed in as part of the request."
	invalidUUIDMessage     = "An invalid UUID (%s) was passed in as part of the request."
)

// Maps non-200 status codes to errors. key names what was looked up.
func errorFromStatus(statusCode int, data []byte, key string, invalidRequestMessage string) error {
	switch statusCode {
	case http.StatusOK:
		return nil
	case http.StatusNoContent,
		http.StatusNotFound:
		return &domain.NotFoundError{Key: key}
	case http.StatusBadRequest:
		return &domain.RequestError{Message: errorMessageFromBody(data, invalidRequestMessage)}
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: mojang API returned status code %d", domain.ErrTemporarilyUnavailable, statusCode)
	}

	if statusCode >= 500 && statusCode <= 599 {
		return fmt.Errorf("%w: mojang API returned status code %d", domain.ErrTemporarilyUnavailable, statusCode)
	}

	return fmt.Errorf("%w: mojang API returned unexpected status code %d", domain.ErrParse, statusCode)
}

func errorMessageFromBody(data []byte, fallback string) string {
	if !gjson.ValidBytes(data) {
		return fallback
	}

	body := gjson.ParseBytes(data)
	if !body.IsObject() {
		return fallback
	}

	message := body.Get("errorMessage")
	if message.Type != gjson.String {
		return fallback
	}
	return message.Str
}

func parseObject(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: response is not valid JSON", domain.ErrParse)
	}

	body := gjson.ParseBytes(data)
	if !body.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: expected a JSON object", domain.ErrParse)
	}
	return body, nil
}

func parseArray(data []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: response is not valid JSON", domain.ErrParse)
	}

	body := gjson.ParseBytes(data)
	if !body.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrParse)
	}
	return body.Array(), nil
}

func stringField(record gjson.Result, field string) (string, bool) {
	value := record.Get(field)
	if !value.Exists() || value.Type != gjson.String {
		return "", false
	}
	return value.Str, true
}

// Builds an account from a single {"id": ..., "name": ...} record
func accountFromRecord(record gjson.Result) (domain.Account, error) {
	compactUUID, ok := stringField(record, "id")
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: missing UUID in account data", domain.ErrValidation)
	}
	if len(compactUUID) != strutils.STRIPPED_UUID_LENGTH {
		return domain.Account{}, fmt.Errorf(
			"%w: UUID is not %d characters long: '%s'",
			domain.ErrValidation, strutils.STRIPPED_UUID_LENGTH, compactUUID,
		)
	}

	id, err := strutils.UUIDFromCompact(compactUUID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	username, ok := stringField(record, "name")
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: missing username in account data for %s", domain.ErrValidation, id)
	}

	return domain.NewAccount(id, username)
}

func accountFromMojangResponse(statusCode int, data []byte, key string, invalidRequestMessage string) (domain.Account, error) {
	if err := errorFromStatus(statusCode, data, key, invalidRequestMessage); err != nil {
		return domain.Account{}, err
	}

	record, err := parseObject(data)
	if err != nil {
		return domain.Account{}, err
	}

	return accountFromRecord(record)
}

// All or nothing: one bad record fails the whole batch
func accountsFromMojangResponse(statusCode int, data []byte, key string) ([]domain.Account, error) {
	if err := errorFromStatus(statusCode, data, key, invalidBatchMessage); err != nil {
		return nil, err
	}

	records, err := parseArray(data)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(records))
	for i, record := range records {
		if !record.IsObject() {
			return nil, fmt.Errorf("%w: invalid account data returned at index %d", domain.ErrParse, i)
		}

		account, err := accountFromRecord(record)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// Builds the history from an array of {"name": ..., "changedToAt"?: ...} records
func historyFromMojangResponse(statusCode int, data []byte, id uuid.UUID) (domain.AccountHistory, error) {
	if err := errorFromStatus(statusCode, data, id.String(), fmt.Sprintf(invalidUUIDMessage, id)); err != nil {
		return domain.AccountHistory{}, err
	}

	records, err := parseArray(data)
	if err != nil {
		return domain.AccountHistory{}, err
	}

	changes := make([]domain.NameChange, 0, len(records))
	for i, record := range records {
		if !record.IsObject() {
			return domain.AccountHistory{}, fmt.Errorf("%w: invalid name history entry at index %d for %s", domain.ErrValidation, i, id)
		}

		username, ok := stringField(record, "name")
		if !ok {
			return domain.AccountHistory{}, fmt.Errorf("%w: missing username in name history entry at index %d for %s", domain.ErrValidation, i, id)
		}

		var changedToAt int64
		// null is treated like an absent field
		if rawChangedToAt := record.Get("changedToAt"); rawChangedToAt.Exists() && rawChangedToAt.Type != gjson.Null {
			if rawChangedToAt.Type != gjson.Number {
				return domain.AccountHistory{}, fmt.Errorf("%w: name change time is not a number (%s) for %s", domain.ErrValidation, rawChangedToAt.Raw, id)
			}
			changedToAt, err = strconv.ParseInt(rawChangedToAt.Raw, 10, 64)
			if err != nil {
				return domain.AccountHistory{}, fmt.Errorf("%w: name change time is not an integer (%s) for %s", domain.ErrValidation, rawChangedToAt.Raw, id)
			}
		}

		changes = append(changes, domain.NameChange{
			ChangedToAt: changedToAt,
			Username:    username,
		})
	}

	return domain.NewAccountHistory(id, changes)
}
