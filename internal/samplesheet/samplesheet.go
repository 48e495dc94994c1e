package samplesheet

import (
	"bufio"
	"os"
	"strings"
)

// Section holds the parsing coordinates for one instrument family's
// sample-sheet layout.
type Section struct {
	Header     string
	ProjectCol int
	LibraryCol int
}

// MiSeq rows live in the [Data] section with the project in column 9
// and the library id in column 1. NextSeq sheets use [Cloud_Data] with
// columns 1 and 0.
var (
	MiSeq   = Section{Header: "[Data]", ProjectCol: 9, LibraryCol: 1}
	NextSeq = Section{Header: "[Cloud_Data]", ProjectCol: 1, LibraryCol: 0}
)

// LibrariesOfInterest scans lines for the section and returns the
// library ids of rows whose project column equals projectID. The two
// lines after the section header (column names and the secondary or
// blank line the instrument writes) are skipped. Short rows read as
// empty columns and never match.
func LibrariesOfInterest(lines []string, section Section, projectID string) []string {
	var libraries []string
	inSection := false
	skip := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inSection {
			if strings.HasPrefix(trimmed, section.Header) {
				inSection = true
				skip = 2
			}
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			break
		}
		cols := strings.Split(trimmed, ",")
		if column(cols, section.ProjectCol) != projectID {
			continue
		}
		if id := column(cols, section.LibraryCol); id != "" {
			libraries = append(libraries, id)
		}
	}
	return libraries
}

// ReadLibrariesOfInterest reads a sample-sheet file and extracts the
// library ids of interest for projectID.
func ReadLibrariesOfInterest(path string, section Section, projectID string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return LibrariesOfInterest(lines, section, projectID), nil
}

func column(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[idx])
}
