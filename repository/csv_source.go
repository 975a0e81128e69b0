package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"facility-allocator/domain"
)

// Column layouts of the input files. Headers are skipped and fields are
// mapped by position.
var (
	BankColumns      = []string{"id", "name"}
	CovenantColumns  = []string{"facility_id", "max_default_likelihood", "bank_id", "banned_state"}
	FacilityColumns  = []string{"amount", "interest_rate", "id", "bank_id"}
	LoanColumns      = []string{"interest_rate", "amount", "id", "default_likelihood", "state"}
	ErrMissingSource = errors.New("input file path not configured")
)

// CSVPaths locates the input files. Banks is optional.
type CSVPaths struct {
	Facilities string
	Covenants  string
	Loans      string
	Banks      string
}

// CSVBatchSource reads a batch from delimited text files.
type CSVBatchSource struct {
	paths CSVPaths
}

func NewCSVBatchSource(paths CSVPaths) *CSVBatchSource {
	return &CSVBatchSource{paths: paths}
}

// LoadBatch reads all files concurrently. Any failure aborts the whole batch.
func (s *CSVBatchSource) LoadBatch(ctx context.Context) (domain.Batch, error) {
	var batch domain.Batch

	required := []struct {
		name, path string
	}{
		{"facilities", s.paths.Facilities},
		{"covenants", s.paths.Covenants},
		{"loans", s.paths.Loans},
	}
	for _, r := range required {
		if r.path == "" {
			return domain.Batch{}, fmt.Errorf("%s: %w", r.name, ErrMissingSource)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		batch.Facilities, err = readCSV(ctx, s.paths.Facilities, len(FacilityColumns), parseFacility)
		return err
	})
	g.Go(func() error {
		var err error
		batch.Covenants, err = readCSV(ctx, s.paths.Covenants, len(CovenantColumns), parseCovenant)
		return err
	})
	g.Go(func() error {
		var err error
		batch.Loans, err = readCSV(ctx, s.paths.Loans, len(LoanColumns), parseLoan)
		return err
	})
	if s.paths.Banks != "" {
		g.Go(func() error {
			var err error
			batch.Banks, err = readCSV(ctx, s.paths.Banks, len(BankColumns), parseBank)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Batch{}, err
	}
	return batch, nil
}

func readCSV[T any](
	ctx context.Context,
	path string,
	width int,
	parse func(record []string) (T, error),
) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = width
	reader.TrimLeadingSpace = true

	// Header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []T{}, nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	items := []T{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		item, err := parse(record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		items = append(items, item)
	}

	return items, nil
}

func parseNumber(field, value string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return n, nil
}

func parseFacility(r []string) (domain.Facility, error) {
	amount, err := parseNumber("amount", r[0])
	if err != nil {
		return domain.Facility{}, err
	}
	rate, err := parseNumber("interest_rate", r[1])
	if err != nil {
		return domain.Facility{}, err
	}
	return domain.Facility{
		Amount:       amount,
		InterestRate: rate,
		ID:           strings.TrimSpace(r[2]),
		BankID:       strings.TrimSpace(r[3]),
	}, nil
}

func parseCovenant(r []string) (domain.Covenant, error) {
	var maxDefault float64
	// Some covenants only ban a state and leave the threshold empty.
	if strings.TrimSpace(r[1]) != "" {
		var err error
		maxDefault, err = parseNumber("max_default_likelihood", r[1])
		if err != nil {
			return domain.Covenant{}, err
		}
	}
	return domain.Covenant{
		FacilityID:           strings.TrimSpace(r[0]),
		MaxDefaultLikelihood: maxDefault,
		BankID:               strings.TrimSpace(r[2]),
		BannedState:          strings.TrimSpace(r[3]),
	}, nil
}

func parseLoan(r []string) (domain.Loan, error) {
	rate, err := parseNumber("interest_rate", r[0])
	if err != nil {
		return domain.Loan{}, err
	}
	amount, err := parseNumber("amount", r[1])
	if err != nil {
		return domain.Loan{}, err
	}
	defaultLikelihood, err := parseNumber("default_likelihood", r[3])
	if err != nil {
		return domain.Loan{}, err
	}
	return domain.Loan{
		InterestRate:      rate,
		Amount:            amount,
		ID:                strings.TrimSpace(r[2]),
		DefaultLikelihood: defaultLikelihood,
		State:             strings.TrimSpace(r[4]),
	}, nil
}

func parseBank(r []string) (domain.Bank, error) {
	return domain.Bank{
		ID:   strings.TrimSpace(r[0]),
		Name: strings.TrimSpace(r[1]),
	}, nil
}
