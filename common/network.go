package common

type Network struct {
	Name string
	Addr string
}

var Bitcoin = Network{
	Name: "bitcoin",
	Addr: "ark",
}

var BitcoinTestNet = Network{
	Name: "testnet",
	Addr: "tark",
}

var BitcoinSigNet = Network{
	Name: "signet",
	Addr: "tark",
}

var BitcoinMutinyNet = Network{
	Name: "mutinynet",
	Addr: "tark",
}

var BitcoinRegTest = Network{
	Name: "regtest",
	Addr: "tark",
}

var supportedNetworks = []Network{
	Bitcoin, BitcoinTestNet, BitcoinSigNet, BitcoinMutinyNet, BitcoinRegTest,
}

func NetworkFromString(name string) (Network, bool) {
	for _, net := range supportedNetworks {
		if net.Name == name {
			return net, true
		}
	}
	return Network{}, false
}

func isSupportedPrefix(hrp string) bool {
	for _, net := range supportedNetworks {
		if net.Addr == hrp {
			return true
		}
	}
	return false
}
