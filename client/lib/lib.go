package lib

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/webtrekk/webtrekk-go/client/encode"
)

var (
	Version   string = "Unknown"
	GitCommit string = "Unknown"
)

func CheckFatalError(err error) {
	if err != nil {
		_, filename, line, _ := runtime.Caller(1)
		log.Fatalf("wtctl %s fatal error at %s:%d: %v", Version, filename, line, err)
	}
}

// ParseTimeGenerously accepts most human date formats, with underscores standing in for spaces
// so that dates can be passed as a single shell word.
func ParseTimeGenerously(input string) (time.Time, error) {
	input = strings.ReplaceAll(input, "_", " ")
	return dateparse.ParseLocal(input)
}

// ParseCustomParams turns key=value arguments into parameters, keeping the argument order.
func ParseCustomParams(args []string) (*encode.Params, error) {
	params := encode.NewParams()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("custom parameter %q is not of the form key=value", arg)
		}
		params.Set(key, value)
	}
	return params, nil
}
