package sale

var (
	configKey       = []byte("sale/config")
	totalsKey       = []byte("sale/totals")
	userPrefix      = []byte("sale/user/")
	recordsPrefix   = []byte("sale/records/")
	contributorsKey = []byte("sale/contributors")
	refundedKey     = []byte("sale/refunded")
)

func userKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(userPrefix)+len(addr))
	key = append(key, userPrefix...)
	key = append(key, addr[:]...)
	return key
}

func recordsKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(recordsPrefix)+len(addr))
	key = append(key, recordsPrefix...)
	key = append(key, addr[:]...)
	return key
}
