package util

import (
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
)

var chartExtensions = []string{".json", ".yaml", ".yml", ".mid", ".midi"}

func IsChartFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range chartExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// GatherChartPaths walks root and returns every chart file under it, up to
// maxNum paths (0 means no limit).
func GatherChartPaths(root string, maxNum int) ([]string, error) {
	var res []string
	walk := func(s string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsChartFile(s) {
			if maxNum == 0 || len(res) < maxNum {
				res = append(res, s)
			}
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

func GetKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := make([]A, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func SortedKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := GetKeys(m)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

func Min[A constraints.Ordered](num1 A, num2 A) A {
	if num1 > num2 {
		return num2
	}
	return num1
}

func Max[A constraints.Ordered](num1 A, num2 A) A {
	if num1 < num2 {
		return num2
	}
	return num1
}

func Clamp[A constraints.Ordered](v, lo, hi A) A {
	return Max(lo, Min(v, hi))
}

func Abs[A constraints.Signed | constraints.Float](v A) A {
	if v < 0 {
		return -v
	}
	return v
}

// Finite returns v, or fallback when v is NaN or infinite.
func Finite[A constraints.Float](v, fallback A) A {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return v
}

// OrDefault returns def when v is zero, negative or not finite.
func OrDefault[A constraints.Float | constraints.Integer](v, def A) A {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return def
	}
	return v
}
