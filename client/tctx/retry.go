package tctx

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const SQLITE_LOCKED_ERR_MSG = "database is locked ("

// RetryingDbFunction runs dbFunc, retrying with a randomized sleep for as long as another
// process holds the sqlite write lock.
func RetryingDbFunction(dbFunc func() error) error {
	var err error = nil
	i := 0
	for i = 0; i < 10; i++ {
		err = dbFunc()
		if err == nil {
			return nil
		}
		errMsg := err.Error()
		if strings.Contains(errMsg, SQLITE_LOCKED_ERR_MSG) {
			time.Sleep(time.Duration(i*rand.Intn(100)) * time.Millisecond)
			continue
		}
		return fmt.Errorf("unrecoverable sqlite error: %w", err)
	}
	return fmt.Errorf("failed to execute DB transaction even with %d retries: %w", i, err)
}

func RetryingDbFunctionWithResult[T any](dbFunc func() (T, error)) (T, error) {
	var t T
	err := RetryingDbFunction(func() error {
		var err error
		t, err = dbFunc()
		return err
	})
	return t, err
}
