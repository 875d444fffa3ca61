// Package documents renders invoice documents and archives them.
//
// TextRenderer implements invoices.Renderer. S3Archive and MemoryArchive
// implement invoices.Archive; S3Archive works against AWS S3 or any S3
// compatible store such as MinIO when UsePathStyle is set.
package documents
