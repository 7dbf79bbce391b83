package secrets

import (
	"os"
	"strings"
)

// EnvPrefix selects the environment variables exposed as secrets.
const EnvPrefix = "AGENTLINK_SECRET_"

// EnvLoader returns a Loader reading every environment variable that starts
// with prefix. Secret names are the variable names without the prefix;
// empty values are omitted.
func EnvLoader(prefix string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string)
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || v == "" {
				continue
			}
			if name, found := strings.CutPrefix(k, prefix); found && name != "" {
				vals[name] = v
			}
		}
		return vals, nil
	}
}
