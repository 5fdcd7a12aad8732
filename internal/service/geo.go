package service

import "strings"

// IsCountryAvailable 投放地域判断，国家代码不区分大小写
func IsCountryAvailable(country string, targetCountries []string, isWorldwide bool) bool {
	if isWorldwide {
		return true
	}
	for _, c := range targetCountries {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(country)) {
			return true
		}
	}
	return false
}

func normalizeCountries(countries []string) []string {
	out := make([]string, 0, len(countries))
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
