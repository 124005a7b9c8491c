package domain

import "io"

// Transformer decodes a raw backend body into a FeedResponse.
type Transformer interface {
	Transform(reader io.Reader) (*FeedResponse, error)
}
