package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jkeger/arctic-go/cti"
)

// readImage loads a whitespace-separated decimal image file with a
// leading "# rows cols" header.
func readImage(path string) (*cti.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var rows, cols int
	headerSeen := false
	var data [][]float64

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !headerSeen {
			header := strings.TrimPrefix(line, "#")
			fields := strings.Fields(header)
			if len(fields) != 2 {
				return nil, fmt.Errorf("image %q: malformed header %q, want \"# rows cols\"", path, line)
			}
			rows, err = strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("image %q: bad row count: %w", path, err)
			}
			cols, err = strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("image %q: bad column count: %w", path, err)
			}
			headerSeen = true
			data = make([][]float64, 0, rows)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != cols {
			return nil, fmt.Errorf("image %q: row %d has %d values, want %d", path, len(data), len(fields), cols)
		}
		row := make([]float64, cols)
		for i, tok := range fields {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("image %q: row %d col %d: %w", path, len(data), i, err)
			}
			row[i] = v
		}
		data = append(data, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading image %q: %w", path, err)
	}
	if !headerSeen {
		return nil, fmt.Errorf("image %q: missing \"# rows cols\" header", path)
	}
	if len(data) != rows {
		return nil, fmt.Errorf("image %q: header declared %d rows, found %d", path, rows, len(data))
	}
	return cti.NewImage(data)
}

// writeImage writes an image back out in the same "# rows cols" plus
// whitespace-separated-decimal format readImage expects.
func writeImage(path string, img *cti.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %d %d\n", img.NRows(), img.NCols())
	for _, row := range img.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
	}
	return w.Flush()
}
