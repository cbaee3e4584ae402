package pipeline

import (
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type windowedParquetRow struct {
	Recording string    `parquet:"name=recording, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Activity  string    `parquet:"name=activity, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSUTCISO  string    `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
	ElapsedS  float64   `parquet:"name=elapsed_s, type=DOUBLE"`
	Values    []float64 `parquet:"name=values, type=DOUBLE, repetitiontype=REPEATED"`
}

func writeWindowedParquet(path string, samples []WindowedSample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(windowedParquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := windowedParquetRow{
			Recording: s.Recording,
			Activity:  s.Activity,
			TSUTCISO:  s.TSUTCISO,
			ElapsedS:  s.ElapsedS,
			Values:    s.Values,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}
