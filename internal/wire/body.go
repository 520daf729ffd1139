package wire

import "io"

// ReadBody fills buf from r and returns the number of bytes read. The read
// stops at EOF or when buf is full, whichever comes first: a body that
// exactly fills buf is complete data, not an error, and anything a sender
// writes past the cap is left unread. Errors other than EOF are returned
// with the count read so far.
//
// The relay calls this with its reusable 256 KiB body buffer
// (cloud.MaxBodySize).
func ReadBody(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
