package recoverykey

var (
	FromPrivateKeyHex = fromPrivateKeyHex
	DecodeDIDKey      = decodeDIDKey
)
