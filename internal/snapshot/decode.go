package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/exp/mmap"
)

// This file is the boundary the non-goal sits behind: spec.md treats the
// real on-disk columnar decoders as an abstract Table[T] with an
// iterator contract (§1, §9) and explicitly excludes their byte layout
// from scope. What follows is a minimal, good-enough stand-in so the
// eight query-engine phases have real tables to scan against: each
// recognized CSV is parsed into its typed Full row, persisted as a JSON
// array (one file per table), and read back through a read-only
// mmap.ReaderAt rather than os.ReadFile. A production backing would
// replace convertCSVToTable/loadDecodedTables's JSON framing with an
// actual binary encoder; the mapped-read path and the Tables/phases in
// provider.go would not change.

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// csvColumns expects the first row to be a header and returns a
// column-name -> index map plus the remaining rows.
func csvColumns(r io.Reader) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return map[string]int{}, nil, nil
	}
	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[name] = i
	}
	return cols, records[1:], nil
}

func col(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func convertCSVToTable(root, name string, r io.Reader) error {
	cols, rows, err := csvColumns(r)
	if err != nil {
		return err
	}

	var payload any
	switch name {
	case "packages":
		out := make([]PackageFull, 0, len(rows))
		for _, row := range rows {
			out = append(out, PackageFull{ID: readUint(col(row, cols, "id")), Name: col(row, cols, "name")})
		}
		payload = out
	case "versions":
		out := make([]VersionFull, 0, len(rows))
		for _, row := range rows {
			out = append(out, VersionFull{
				ID:            readUint(col(row, cols, "id")),
				PackageID:     readUint(col(row, cols, "package_id")),
				Num:           col(row, cols, "num"),
				License:       col(row, cols, "license"),
				Description:   col(row, cols, "description"),
				Homepage:      col(row, cols, "homepage"),
				Documentation: col(row, cols, "documentation"),
				Repository:    col(row, cols, "repository"),
				RustVersion:   col(row, cols, "rust_version"),
				Edition:       col(row, cols, "edition"),
				CreatedAt:     parseTime(col(row, cols, "created_at")),
			})
		}
		payload = out
	case "dependencies":
		out := make([]DependencyFull, 0, len(rows))
		for _, row := range rows {
			out = append(out, DependencyFull{
				PackageID: readUint(col(row, cols, "package_id")),
				VersionID: readUint(col(row, cols, "version_id")),
			})
		}
		payload = out
	case "categories":
		out := make([]CategoryRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, CategoryRow{ID: readUint(col(row, cols, "id")), Slug: col(row, cols, "slug")})
		}
		payload = out
	case "keywords":
		out := make([]KeywordRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, KeywordRow{ID: readUint(col(row, cols, "id")), Word: col(row, cols, "keyword")})
		}
		payload = out
	case "users":
		out := make([]UserRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, UserRow{ID: readUint(col(row, cols, "id")), Login: col(row, cols, "login")})
		}
		payload = out
	case "teams":
		out := make([]TeamRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, TeamRow{ID: readUint(col(row, cols, "id")), Name: col(row, cols, "name")})
		}
		payload = out
	case "owners":
		out := make([]OwnerJoinRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, OwnerJoinRow{
				PackageID: readUint(col(row, cols, "package_id")),
				OwnerID:   readUint(col(row, cols, "owner_id")),
				IsTeam:    col(row, cols, "owner_kind") == "team",
			})
		}
		payload = out
	case "package_categories":
		out := make([]PackageCategoryJoinRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, PackageCategoryJoinRow{
				PackageID:  readUint(col(row, cols, "package_id")),
				CategoryID: readUint(col(row, cols, "category_id")),
			})
		}
		payload = out
	case "package_keywords":
		out := make([]PackageKeywordJoinRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, PackageKeywordJoinRow{
				PackageID: readUint(col(row, cols, "package_id")),
				KeywordID: readUint(col(row, cols, "keyword_id")),
			})
		}
		payload = out
	case "package_downloads":
		out := make([]PackageDownloadRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, PackageDownloadRow{
				PackageID: readUint(col(row, cols, "package_id")),
				Downloads: readUint(col(row, cols, "downloads")),
			})
		}
		payload = out
	case "version_downloads":
		out := make([]VersionDownloadRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, VersionDownloadRow{
				VersionID: readUint(col(row, cols, "version_id")),
				Date:      parseTime(col(row, cols, "date")),
				Downloads: readUint(col(row, cols, "downloads")),
			})
		}
		payload = out
	default:
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, name+".bin"), data, 0o644)
}

func readUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

// loadDecodedTables maps every table file read-only and decodes it,
// returning the open readers alongside the tables so the caller can
// keep them alive for the Manager's lifetime and close them on refresh.
func loadDecodedTables(root string) (*Tables, []*mmap.ReaderAt, error) {
	var mapped []*mmap.ReaderAt
	closeMapped := func() {
		for _, r := range mapped {
			r.Close()
		}
	}

	var packages []PackageFull
	var versions []VersionFull
	var deps []DependencyFull
	var categories []CategoryRow
	var keywords []KeywordRow
	var users []UserRow
	var teams []TeamRow
	var owners []OwnerJoinRow
	var pkgCats []PackageCategoryJoinRow
	var pkgKws []PackageKeywordJoinRow
	var pkgDownloads []PackageDownloadRow
	var verDownloads []VersionDownloadRow

	if err := readJSON(root, "packages", &packages, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "versions", &versions, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "dependencies", &deps, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "categories", &categories, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "keywords", &keywords, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "users", &users, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "teams", &teams, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "owners", &owners, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "package_categories", &pkgCats, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "package_keywords", &pkgKws, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "package_downloads", &pkgDownloads, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}
	if err := readJSON(root, "version_downloads", &verDownloads, &mapped); err != nil {
		closeMapped()
		return nil, nil, err
	}

	packageLean := make([]PackageLean, len(packages))
	for i, p := range packages {
		packageLean[i] = PackageLean{ID: p.ID, Name: p.Name}
	}
	versionLean := make([]VersionLean, len(versions))
	for i, v := range versions {
		versionLean[i] = VersionLean{ID: v.ID, PackageID: v.PackageID}
	}
	depLean := make([]DependencyLean, len(deps))
	for i, d := range deps {
		depLean[i] = DependencyLean{PackageID: d.PackageID, VersionID: d.VersionID}
	}

	return &Tables{
		Packages:          NewMemTable(packageLean, packages),
		Versions:          NewMemTable(versionLean, versions),
		Dependencies:      NewMemTable(depLean, deps),
		Categories:        NewMemTable(categories, categories),
		Keywords:          NewMemTable(keywords, keywords),
		Users:             NewMemTable(users, users),
		Teams:             NewMemTable(teams, teams),
		Owners:            NewMemTable(owners, owners),
		PackageCategories: NewMemTable(pkgCats, pkgCats),
		PackageKeywords:   NewMemTable(pkgKws, pkgKws),
		PackageDownloads:  NewMemTable(pkgDownloads, pkgDownloads),
		VersionDownloads:  NewMemTable(verDownloads, verDownloads),
	}, mapped, nil
}

// readJSON opens name's table file as a read-only memory map, decodes
// its JSON payload into out, and appends the open reader to *mapped so
// the caller can keep it alive (or close it on error/refresh).
func readJSON(root, name string, out any, mapped *[]*mmap.ReaderAt) error {
	r, err := mmap.Open(filepath.Join(root, name+".bin"))
	if err != nil {
		return err
	}
	*mapped = append(*mapped, r)

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return err
	}
	return json.Unmarshal(buf, out)
}
