package datasource

import (
	"iter"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/internal/types"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// CSVSource reads bars from a CSV file with a header matching the
// types.MarketData csv tags. The file is loaded once on first use and
// cached for subsequent iterations.
type CSVSource struct {
	FilePath string
	cache    []types.MarketData
}

func NewCSVSource(filePath string) *CSVSource {
	return &CSVSource{
		FilePath: filePath,
	}
}

func (c *CSVSource) load() error {
	if c.cache != nil {
		return nil
	}

	csvFile, err := os.Open(c.FilePath)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to open CSV file %s", c.FilePath)
	}
	defer csvFile.Close()

	if err := gocsv.UnmarshalFile(csvFile, &c.cache); err != nil {
		return errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to unmarshal CSV file %s", c.FilePath)
	}

	sort.SliceStable(c.cache, func(i, j int) bool {
		if !c.cache[i].Time.Equal(c.cache[j].Time) {
			return c.cache[i].Time.Before(c.cache[j].Time)
		}
		return c.cache[i].Symbol < c.cache[j].Symbol
	})

	return nil
}

func (c *CSVSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		if err := c.load(); err != nil {
			yield(types.MarketData{}, err)
			return
		}

		for _, bar := range c.cache {
			if !inRange(bar.Time, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

func (c *CSVSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	if err := c.load(); err != nil {
		return 0, err
	}

	count := 0
	for _, bar := range c.cache {
		if inRange(bar.Time, start, end) {
			count++
		}
	}

	return count, nil
}
