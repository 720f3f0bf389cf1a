package llm

// repairJSON fixes common malformations in model JSON output. It
// handles keys missing their opening quote (`, type":` -> `, "type":`)
// and trailing commas before a closing brace or bracket.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	i := 0
	for i < len(in) {
		ch := in[i]

		if ch == '{' || ch == ',' {
			out = append(out, ch)
			i++

			for i < len(in) && (in[i] == ' ' || in[i] == '\n' || in[i] == '\t') {
				out = append(out, in[i])
				i++
			}

			if i < len(in) && in[i] != '"' && isIdentRune(in[i]) {
				keyStart := i
				for i < len(in) && (isIdentRune(in[i]) || in[i] == ' ') {
					i++
				}
				if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
					out = append(out, '"')
					out = append(out, in[keyStart:i]...)
					continue
				}
				out = append(out, in[keyStart:i]...)
			}
			continue
		}

		out = append(out, ch)
		i++
	}

	return dropTrailingCommas(string(out))
}

func dropTrailingCommas(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] == ',' {
			j := i + 1
			for j < len(in) && (in[j] == ' ' || in[j] == '\n' || in[j] == '\t') {
				j++
			}
			if j < len(in) && (in[j] == '}' || in[j] == ']') {
				continue
			}
		}
		out = append(out, in[i])
	}
	return string(out)
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}
