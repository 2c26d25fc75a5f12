// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
//	// awss3 is github.com/aws/aws-sdk-go-v2/service/s3
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "reference/")
//
//	bsStore := backingstore.New(store, rc)
//	eng, err := placement.New(treePath, msaPath, model).WithBackingStore(bsStore, capacity).Build()
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large segments
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
