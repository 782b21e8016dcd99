package plans

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/schema"
)

// MockResponder answers prompts offline so every plan can run end to end
// without provider keys. Prompts that ask for one of schemas get that
// schema's example value; prompts that ask for a JSON array get a short
// array; everything else gets a small markdown answer.
func MockResponder(schemas map[string]*schema.Schema) func(prompt string) (string, error) {
	return func(prompt string) (string, error) {
		var match *schema.Schema
		for _, s := range schemas {
			desc := s.Describe()
			if !strings.Contains(prompt, desc) {
				continue
			}
			if match == nil || len(desc) > len(match.Describe()) {
				match = s
			}
		}
		if match != nil {
			data, err := json.Marshal(match.Example())
			if err != nil {
				return "", err
			}
			return string(data), nil
		}

		task := strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0])
		if strings.Contains(prompt, "JSON array") {
			data, err := json.Marshal([]string{"first idea for: " + task, "second idea for: " + task})
			return string(data), err
		}
		return fmt.Sprintf("# Draft\n\n%s\n\n- first point\n- second point\n- third point\n", task), nil
	}
}

// NewMockAdapter returns a mock adapter answering with MockResponder over
// the content schemas.
func NewMockAdapter() *adapter.MockAdapter {
	return adapter.NewMockAdapterFunc(MockResponder(schema.Registry()))
}
