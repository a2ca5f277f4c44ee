package turn

import "strings"

// markup holds the emphasis characters models like to emit; none of them
// survive speech synthesis gracefully.
var markup = strings.NewReplacer(
	"*", "",
	"_", "",
	"~", "",
	"`", "",
	"#", "",
)

// Normalize removes markup emphasis characters from a model answer and trims
// surrounding whitespace. It is idempotent.
func Normalize(s string) string {
	return strings.TrimSpace(markup.Replace(s))
}

func pathString(path []State) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = s.String()
	}
	return strings.Join(parts, ">")
}
