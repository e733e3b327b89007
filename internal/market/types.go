package market

import "time"

// AssetKind 标识合约资产类别。
type AssetKind int

const (
	// AssetOption 期权合约。
	AssetOption AssetKind = 1
	// AssetFuture 期货合约。
	AssetFuture AssetKind = 2
)

// String 返回资产类别的可读名称。
func (k AssetKind) String() string {
	switch k {
	case AssetOption:
		return "option"
	case AssetFuture:
		return "future"
	default:
		return "unknown"
	}
}

// ParseAssetKind 解析配置中的资产类别名称。
func ParseAssetKind(name string) (AssetKind, bool) {
	switch name {
	case "option":
		return AssetOption, true
	case "future":
		return AssetFuture, true
	default:
		return 0, false
	}
}

// OptionRight 表示期权方向，C 为认购，P 为认沽。
type OptionRight string

const (
	RightCall OptionRight = "C"
	RightPut  OptionRight = "P"
)

// Row 为清洗后行情表中的单行记录，对应一个 (date, uni_id) 组合。
// 由外部数据协作方产出，内核只消费该契约。
type Row struct {
	UniID        string
	Date         time.Time
	Exchange     string
	Kind         AssetKind
	Open         float64
	High         float64
	Low          float64
	Close        float64
	CloseAdj     float64
	Volume       float64
	ListedDate   time.Time
	DeListedDate time.Time

	// 衍生品专属字段，期货行情中为零值。
	StrikePrice  float64
	OptionRight  OptionRight
	UnderlyingID string
}

// FutureRow 为标的期货行情表中的单行记录。
type FutureRow struct {
	UniID                 string
	Date                  time.Time
	Close                 float64
	UnderlyingOrderBookID string
	MaturityDate          time.Time
}

// Table 是数据协作方交付的原始行情表。Columns 声明了协作方实际
// 填充的列，交易所模拟器据此做必需列校验。
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn 判断表中是否包含指定列。
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// RequiredColumns 为基础快照校验所需的最小列集合。
var RequiredColumns = []string{"uni_id", "date", "exchange", "type", "listed_date", "de_listed_date"}
