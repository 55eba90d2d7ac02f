package constant

import "fmt"

const (
	ProductionEnvironment = "production"

	RawQuoteStreamName       = "raw_quote"
	RawQuoteStreamSubjectAll = "raw_quote.*"
	RawQuoteInsertQueueGroup = "raw_quote_insert_group"

	RawQuoteKeyPrefix = "raw_quote"
)

func GetRawQuoteStreamSubject(venue string) string {
	return fmt.Sprintf("%s.%s", RawQuoteStreamName, venue)
}
