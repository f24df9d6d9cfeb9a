// Package serialization stores client updates in the SafeTensors format.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}, plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, in header name order]
//
// Every file written here carries a SHA-256 checksum of its data section in
// the metadata, checked again on read.
//
// Example usage:
//
//	err := serialization.WriteSafeTensors("client-3.safetensors", tensors, map[string]string{
//	    "kind": "grads",
//	})
//
//	tensors, meta, err := serialization.ReadSafeTensors("client-3.safetensors")
package serialization
