package pgdb

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolationCode = "23505"

	// Классы SQLSTATE
	dataExceptionClass       = "22"
	connectionExceptionClass = "08"
	operatorInterventionCode = "57P" // admin_shutdown, crash_shutdown, cannot_connect_now
)

// postgresDuplicate сообщает о нарушении уникальности.
func postgresDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// postgresDataError — значение не помещается в колонку или имеет неверный формат.
// Повторная вставка того же значения завершится той же ошибкой.
func postgresDataError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, dataExceptionClass)
}

// brokenConnection сообщает, что соединение (или весь пул) больше нельзя использовать.
func brokenConnection(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, connectionExceptionClass) || strings.HasPrefix(pgErr.Code, operatorInterventionCode)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		pgconn.SafeToRetry(err)
}
