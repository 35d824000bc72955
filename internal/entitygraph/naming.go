package entitygraph

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

const defaultPrimaryKey = "id"

func defaultTableName(entity string) string {
	return toSnakeCase(entity)
}

// defaultToOneJoinColumns follows the <attribute>_<referenced column> convention.
func defaultToOneJoinColumns(attribute string, referenced []string) []string {
	cols := make([]string, len(referenced))
	for i, ref := range referenced {
		cols[i] = toSnakeCase(attribute) + "_" + ref
	}
	return cols
}

// defaultToManyJoinColumns names the back-reference column on the target after
// the singular source entity, e.g. Company.employees -> employee.company_id.
func defaultToManyJoinColumns(source string, referenced []string) []string {
	owner := toSnakeCase(inflection.Singular(source))
	cols := make([]string, len(referenced))
	for i, ref := range referenced {
		cols[i] = owner + "_" + ref
	}
	return cols
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
