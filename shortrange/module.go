package shortrange

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ModuleType 短距无线模块型号
type ModuleType int

const (
	ModuleTypeInvalid ModuleType = iota
	ModuleTypeANNAB1
	ModuleTypeNINAB1
	ModuleTypeNINAB2
	ModuleTypeNINAB3
	ModuleTypeNINAB4
	ModuleTypeNINAW13
	ModuleTypeNINAW15
	ModuleTypeODINW2
)

var moduleNames = map[ModuleType]string{
	ModuleTypeANNAB1:  "ANNA-B1",
	ModuleTypeNINAB1:  "NINA-B1",
	ModuleTypeNINAB2:  "NINA-B2",
	ModuleTypeNINAB3:  "NINA-B3",
	ModuleTypeNINAB4:  "NINA-B4",
	ModuleTypeNINAW13: "NINA-W13",
	ModuleTypeNINAW15: "NINA-W15",
	ModuleTypeODINW2:  "ODIN-W2",
}

func (t ModuleType) String() string {
	if n, ok := moduleNames[t]; ok {
		return n
	}
	return fmt.Sprintf("ModuleType(%d)", int(t))
}

// ParseModuleType 按名称解析模块型号，不区分大小写
func ParseModuleType(name string) (ModuleType, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for t, n := range moduleNames {
		if n == name || strings.ReplaceAll(n, "-", "") == name {
			return t, nil
		}
	}
	return ModuleTypeInvalid, fmt.Errorf("%w: %q", ErrUnknownModuleType, name)
}

// Module 不同模块之间存在差异的时序参数
type Module struct {
	Type              ModuleType    `json:"-"`
	Name              string        `json:"name"`
	BootWait          time.Duration `json:"bootWait"`          // 上电后多久可用
	RebootCommandWait time.Duration `json:"rebootCommandWait"` // 命令重启后多久可用
	CommandTimeout    time.Duration `json:"commandTimeout"`    // 单条 AT 命令等待 OK/ERROR 的上限
	CommandDelay      time.Duration `json:"commandDelay"`      // 两条命令之间的最小间隔
	ResponseMaxWait   time.Duration `json:"responseMaxWait"`   // 即时命令的应答上限，已计入 URC 插队的延迟
}

// Table 模块型号到时序参数的只读映射
type Table map[ModuleType]*Module

// Lookup 查找型号对应的参数
func (tb Table) Lookup(t ModuleType) (*Module, bool) {
	m, ok := tb[t]
	return m, ok
}

// List 按型号顺序返回全部条目
func (tb Table) List() []*Module {
	list := make([]*Module, 0, len(tb))
	for _, m := range tb {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}

// modules 编译期内置的模块参数表
var modules = Table{
	ModuleTypeANNAB1: {
		Type: ModuleTypeANNAB1, Name: "ANNA-B1",
		BootWait: 3 * time.Second, RebootCommandWait: 5 * time.Second,
		CommandTimeout: 8 * time.Second, CommandDelay: 20 * time.Millisecond,
		ResponseMaxWait: 2 * time.Second,
	},
	ModuleTypeNINAB1: {
		Type: ModuleTypeNINAB1, Name: "NINA-B1",
		BootWait: 3 * time.Second, RebootCommandWait: 5 * time.Second,
		CommandTimeout: 8 * time.Second, CommandDelay: 20 * time.Millisecond,
		ResponseMaxWait: 2 * time.Second,
	},
	ModuleTypeNINAB2: {
		Type: ModuleTypeNINAB2, Name: "NINA-B2",
		BootWait: 3 * time.Second, RebootCommandWait: 5 * time.Second,
		CommandTimeout: 8 * time.Second, CommandDelay: 20 * time.Millisecond,
		ResponseMaxWait: 2 * time.Second,
	},
	ModuleTypeNINAB3: {
		Type: ModuleTypeNINAB3, Name: "NINA-B3",
		BootWait: 3 * time.Second, RebootCommandWait: 5 * time.Second,
		CommandTimeout: 8 * time.Second, CommandDelay: 20 * time.Millisecond,
		ResponseMaxWait: 2 * time.Second,
	},
	ModuleTypeNINAB4: {
		Type: ModuleTypeNINAB4, Name: "NINA-B4",
		BootWait: 3 * time.Second, RebootCommandWait: 5 * time.Second,
		CommandTimeout: 8 * time.Second, CommandDelay: 20 * time.Millisecond,
		ResponseMaxWait: 2 * time.Second,
	},
	ModuleTypeNINAW13: {
		Type: ModuleTypeNINAW13, Name: "NINA-W13",
		BootWait: 5 * time.Second, RebootCommandWait: 6 * time.Second,
		CommandTimeout: 10 * time.Second, CommandDelay: 50 * time.Millisecond,
		ResponseMaxWait: 5 * time.Second,
	},
	ModuleTypeNINAW15: {
		Type: ModuleTypeNINAW15, Name: "NINA-W15",
		BootWait: 5 * time.Second, RebootCommandWait: 6 * time.Second,
		CommandTimeout: 10 * time.Second, CommandDelay: 50 * time.Millisecond,
		ResponseMaxWait: 5 * time.Second,
	},
	ModuleTypeODINW2: {
		Type: ModuleTypeODINW2, Name: "ODIN-W2",
		BootWait: 6 * time.Second, RebootCommandWait: 8 * time.Second,
		CommandTimeout: 10 * time.Second, CommandDelay: 50 * time.Millisecond,
		ResponseMaxWait: 5 * time.Second,
	},
}

// Lookup 在内置参数表中查找型号
func Lookup(t ModuleType) (*Module, bool) {
	return modules.Lookup(t)
}

// Modules 返回内置参数表
func Modules() []*Module {
	return modules.List()
}
