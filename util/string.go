package util

import "strings"

func SplitIds(s, sep string) []string {
	if strings.TrimSpace(s) != s {
		panic(s)
	}
	if s == "" {
		return make([]string, 0)
	}
	a := strings.Split(s, sep)
	for _, e := range a {
		if strings.TrimSpace(e) == "" {
			panic(s)
		}
	}
	return a
}
